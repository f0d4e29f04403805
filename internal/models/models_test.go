package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  any
		wantErr bool
	}{
		{
			name:   "valid event",
			entity: Event{ID: "e1", Name: "Concert", CategoryID: "c1", Date: "2025-06-01", Time: "19:30", Price: 10},
		},
		{
			name:    "event without id",
			entity:  Event{Name: "Concert", CategoryID: "c1"},
			wantErr: true,
		},
		{
			name:    "event with bad date",
			entity:  Event{ID: "e1", Name: "Concert", CategoryID: "c1", Date: "01.06.2025"},
			wantErr: true,
		},
		{
			name:    "negative price",
			entity:  Event{ID: "e1", Name: "Concert", CategoryID: "c1", Price: -1},
			wantErr: true,
		},
		{
			name:   "valid category",
			entity: Category{ID: "c1", Name: "Music"},
		},
		{
			name:    "category without name",
			entity:  Category{ID: "c1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.entity)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetID(t *testing.T) {
	assert.Equal(t, "e1", Event{ID: "e1"}.GetID())
	assert.Equal(t, "c1", Category{ID: "c1"}.GetID())
}
