// Package webserver serves the browser chat client: server-rendered thread
// and message views plus the endpoints the page calls to drive the session.
package webserver

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/malonaz/wgpt/internal/configuration"
	"github.com/malonaz/wgpt/internal/model"
	"github.com/malonaz/wgpt/internal/session"
	"github.com/malonaz/wgpt/internal/thread"
)

//go:embed templates
var templatesFS embed.FS

// PageData is the root template context.
type PageData struct {
	Title         string
	Threads       []ThreadViewModel
	Active        *ThreadViewModel
	Models        []*model.Model
	SelectedModel string
	Streaming     bool
}

// ThreadViewModel decorates a thread for rendering.
type ThreadViewModel struct {
	*thread.Thread
	FormattedTime string
	Active        bool
}

// NewCmd instantiates and returns the serve command.
func NewCmd(config *configuration.Config, chatSession *session.Session) *cobra.Command {
	var opts struct {
		Port int
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser chat client",
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := NewServer(chatSession)
			if err != nil {
				return err
			}
			return server.Start(opts.Port)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", config.Server.Port, "Port to serve on")
	return cmd
}

// Server carries the session and parsed templates.
type Server struct {
	session *session.Session
	tmpl    *template.Template
}

// NewServer parses the embedded templates and binds the session.
func NewServer(chatSession *session.Session) (*Server, error) {
	funcMap := sprig.HtmlFuncMap()
	funcMap["formatMessage"] = formatMessage
	funcMap["messageRole"] = messageRole
	funcMap["messageText"] = messageText
	funcMap["attachmentCount"] = attachmentCount

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS,
		"templates/*.tmpl",
		"templates/includes/*.tmpl",
	)
	if err != nil {
		return nil, errors.Wrap(err, "parsing templates")
	}
	return &Server{session: chatSession, tmpl: tmpl}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/", s.handleIndex)
	router.Post("/threads", s.handleCreateThread)
	router.Post("/threads/{id}/select", s.handleSelectThread)
	router.Delete("/threads/{id}", s.handleDeleteThread)
	router.Post("/threads/{id}/messages", s.handleSendTurn)
	router.Post("/model", s.handleSelectModel)
	return router
}

// Start the web server.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	fmt.Printf("Server starting on http://localhost%s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	active := s.session.ActiveThread()

	threads := s.session.Threads()
	threadViews := make([]ThreadViewModel, 0, len(threads))
	var activeView *ThreadViewModel
	for _, t := range threads {
		view := ThreadViewModel{
			Thread:        t,
			FormattedTime: formatTimestamp(t.UpdatedAt),
			Active:        active != nil && t.ID == active.ID,
		}
		threadViews = append(threadViews, view)
		if view.Active {
			activeView = &view
		}
	}

	title := "wgpt"
	if activeView != nil {
		title = activeView.Title
	}
	data := PageData{
		Title:         title,
		Threads:       threadViews,
		Active:        activeView,
		Models:        model.List(),
		SelectedModel: s.session.Model(),
		Streaming:     s.session.Streaming(),
	}
	if err := s.tmpl.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
