package auth_test

import (
	"testing"

	"github.com/goliatone/go-fleet-auth"
	"github.com/stretchr/testify/assert"
)

func TestUserInGroups(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		allowed []string
		want    bool
	}{
		{name: "nil user", raw: nil, want: false},
		{name: "string groups", raw: map[string]any{"groups": []any{"Maquinistas"}}, want: true},
		{name: "record groups by name", raw: map[string]any{"groups": []any{map[string]any{"name": "Gestores"}}}, want: true},
		{name: "record groups by title", raw: map[string]any{"groups": []any{map[string]any{"title": "Gestores"}}}, want: true},
		{name: "name outranks title", raw: map[string]any{"groups": []any{map[string]any{"name": "Otros", "title": "Gestores"}}}, want: false},
		{name: "non text name outranks title", raw: map[string]any{"groups": []any{map[string]any{"name": 5, "title": "Gestores"}}}, want: false},
		{name: "empty name falls through to title", raw: map[string]any{"groups": []any{map[string]any{"name": "", "title": "Gestores"}}}, want: true},
		{name: "slug before label", raw: map[string]any{"groups": []any{map[string]any{"slug": "Otros", "label": "Maquinistas"}}}, want: false},
		{name: "group_names fallback", raw: map[string]any{"group_names": []any{"Gestores"}}, want: true},
		{name: "groups_names fallback", raw: map[string]any{"groups_names": []any{map[string]any{"label": "Maquinistas"}}}, want: true},
		{name: "empty groups shadow fallback", raw: map[string]any{"groups": []any{}, "group_names": []any{"Gestores"}}, want: false},
		{name: "no match", raw: map[string]any{"groups": []any{"Visitantes"}}, want: false},
		{name: "case sensitive", raw: map[string]any{"groups": []any{"gestores"}}, want: false},
		{name: "no group fields", raw: map[string]any{"email": "a@b.com"}, want: false},
		{name: "groups not a list", raw: map[string]any{"groups": "Gestores"}, want: false},
		{name: "unusable entries skipped", raw: map[string]any{"groups": []any{"", 7, map[string]any{"id": 3}, "Gestores"}}, want: true},
		{name: "custom allowed", raw: map[string]any{"groups": []any{"Auditores"}}, allowed: []string{"Auditores"}, want: true},
		{name: "custom allowed excludes defaults", raw: map[string]any{"groups": []any{"Gestores"}}, allowed: []string{"Auditores"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.RawUserInGroups(tt.raw, tt.allowed...))
		})
	}
}

func TestUserInGroups_Typed(t *testing.T) {
	assert.False(t, auth.UserInGroups(nil))
	assert.False(t, auth.UserInGroups(&auth.User{}))
	assert.False(t, auth.UserInGroups(&auth.User{Groups: []auth.GroupRef{{Name: ""}}}))
	assert.True(t, auth.UserInGroups(&auth.User{Groups: []auth.GroupRef{{Name: "Otros"}, {Name: "Gestores"}}}))
}
