package consistency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type mapReader struct {
	items map[string]item
	err   error
}

func (r *mapReader) Get(_ context.Context, id string) (*item, error) {
	if r.err != nil {
		return nil, r.err
	}
	v, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func TestValidatorCheck(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	local := ts.In(time.FixedZone("MSK", 3*60*60))
	ctx := context.Background()

	tests := []struct {
		name         string
		primary      *mapReader
		secondary    *mapReader
		consistent   bool
		differences  []string
		wantErr      bool
		diffContains string
	}{
		{
			name:       "equal values",
			primary:    &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x", UpdatedAt: ts}}},
			secondary:  &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x", UpdatedAt: ts}}},
			consistent: true,
		},
		{
			name:       "timestamps in different zones",
			primary:    &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x", UpdatedAt: ts}}},
			secondary:  &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x", UpdatedAt: local}}},
			consistent: true,
		},
		{
			name:       "nanoseconds beyond storage precision",
			primary:    &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x", UpdatedAt: ts.Add(123456789 * time.Nanosecond)}}},
			secondary:  &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x", UpdatedAt: ts.Add(123456 * time.Microsecond)}}},
			consistent: true,
		},
		{
			name:        "timestamps differ in microseconds",
			primary:     &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x", UpdatedAt: ts.Add(123456 * time.Microsecond)}}},
			secondary:   &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x", UpdatedAt: ts.Add(123457 * time.Microsecond)}}},
			differences: []string{DiffDataDiffers},
		},
		{
			name:        "data differs",
			primary:     &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x"}}},
			secondary:   &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "y"}}},
			differences: []string{DiffDataDiffers},
		},
		{
			name:       "both absent",
			primary:    &mapReader{},
			secondary:  &mapReader{},
			consistent: true,
		},
		{
			name:        "missing in secondary",
			primary:     &mapReader{items: map[string]item{"a1": {ID: "a1"}}},
			secondary:   &mapReader{},
			differences: []string{DiffMissingInSecondary},
		},
		{
			name:        "missing in primary",
			primary:     &mapReader{},
			secondary:   &mapReader{items: map[string]item{"a1": {ID: "a1"}}},
			differences: []string{DiffMissingInPrimary},
		},
		{
			name:         "secondary read fails",
			primary:      &mapReader{items: map[string]item{"a1": {ID: "a1"}}},
			secondary:    &mapReader{err: errors.New("connection refused")},
			diffContains: "failed to read from secondary: connection refused",
		},
		{
			name:      "both reads fail",
			primary:   &mapReader{err: errors.New("primary down")},
			secondary: &mapReader{err: errors.New("secondary down")},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator[item](tt.primary, tt.secondary)

			res, err := v.Check(ctx, "a1")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "primary down")
				assert.Contains(t, err.Error(), "secondary down")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.consistent, res.IsConsistent)
			if tt.differences != nil {
				assert.Equal(t, tt.differences, res.Differences)
			}
			if tt.diffContains != "" {
				require.Len(t, res.Differences, 1)
				assert.Contains(t, res.Differences[0], tt.diffContains)
			}
		})
	}
}

func TestValidatorWithoutSecondary(t *testing.T) {
	primary := &mapReader{err: errors.New("must not be called")}
	v := NewValidator[item](primary, nil)

	res, err := v.Check(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, res.IsConsistent)
	assert.Empty(t, res.Differences)
}

func TestValidatorCheckIsRepeatable(t *testing.T) {
	primary := &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "x"}}}
	secondary := &mapReader{items: map[string]item{"a1": {ID: "a1", Name: "changed"}}}
	v := NewValidator[item](primary, secondary)
	ctx := context.Background()

	first, err := v.Check(ctx, "a1")
	require.NoError(t, err)
	second, err := v.Check(ctx, "a1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCanonical(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{"x", map[string]any{"d": 2, "c": 1}}}
	b := map[string]any{"a": []any{"x", map[string]any{"c": 1, "d": 2}}, "b": 1}

	ca, err := Canonical(a)
	require.NoError(t, err)
	cb, err := Canonical(b)
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
	assert.Equal(t, `{"a":["x",{"c":1,"d":2}],"b":1}`, string(ca))

	ns, err := Canonical(map[string]any{"at": "2025-01-02T03:04:05.123456789Z"})
	require.NoError(t, err)
	us, err := Canonical(map[string]any{"at": "2025-01-02T06:04:05.123456+03:00"})
	require.NoError(t, err)
	assert.Equal(t, `{"at":"2025-01-02T03:04:05.123456Z"}`, string(ns))
	assert.Equal(t, string(ns), string(us))

	_, err = Canonical(func() {})
	assert.Error(t, err)
}
