// Package model holds the closed catalog of model variants a thread can be
// bound to.
package model

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Model represents one variant of the backend model.
type Model struct {
	// ID sent to the backend.
	ID string
	// Alias accepted from the user.
	Alias string
	// Short human description.
	Description string
	// Pricing per million tokens.
	InputPricing  decimal.Decimal
	OutputPricing decimal.Decimal
}

var models = []*Model{
	{
		ID:            "gemini-3-flash-preview",
		Alias:         "flash",
		Description:   "faster, cheaper variant",
		InputPricing:  decimal.RequireFromString("0.30"),
		OutputPricing: decimal.RequireFromString("2.50"),
	},
	{
		ID:            "gemini-3-pro-preview",
		Alias:         "pro",
		Description:   "higher quality variant",
		InputPricing:  decimal.RequireFromString("2.00"),
		OutputPricing: decimal.RequireFromString("12.00"),
	},
}

// Default model for new threads when the configuration does not name one.
func Default() *Model { return models[0] }

// List the catalog.
func List() []*Model {
	listed := make([]*Model, len(models))
	copy(listed, models)
	return listed
}

// Parse a model by id or alias.
func Parse(name string) (*Model, error) {
	name = strings.TrimSpace(name)
	for _, model := range models {
		if model.ID == name || model.Alias == name {
			return model, nil
		}
	}
	return nil, errors.Errorf("unknown model (%s)", name)
}
