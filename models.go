package auth

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// groupFields lists the upstream keys that may carry group memberships,
// in lookup order.
var groupFields = []string{"groups", "group_names", "groups_names"}

// groupLabelFields lists the record keys that may name a group, in
// priority order.
var groupLabelFields = []string{"name", "title", "slug", "label"}

// knownUserFields are decoded into typed attributes, everything else is
// kept in User.Extra.
var knownUserFields = map[string]bool{
	"id":           true,
	"email":        true,
	"username":     true,
	"name":         true,
	"first_name":   true,
	"last_name":    true,
	"phone":        true,
	"phone_number": true,
	"groups":       true,
	"group_names":  true,
	"groups_names": true,
}

// GroupRef is a group membership in canonical form
type GroupRef struct {
	Name string `json:"name"`
}

// User is the identity returned by the current user endpoint.
// Upstream payloads are loosely shaped; UnmarshalJSON maps every known
// variant into this form once, at decode time.
type User struct {
	ID        *int64         `json:"id,omitempty"`
	Email     string         `json:"email,omitempty"`
	Username  string         `json:"username,omitempty"`
	Name      string         `json:"name,omitempty"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Groups    []GroupRef     `json:"groups"`
	Extra     map[string]any `json:"-"`
}

// GroupNames returns the names of the user's groups
func (u *User) GroupNames() []string {
	if u == nil {
		return nil
	}
	names := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		names = append(names, g.Name)
	}
	return names
}

// DisplayName picks the most descriptive name available
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// FormattedPhone returns the phone number in international format, or
// the raw value if it can not be parsed for region.
func (u *User) FormattedPhone(region string) string {
	if u == nil || u.Phone == "" {
		return ""
	}
	num, err := phonenumbers.Parse(u.Phone, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return u.Phone
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.ID != nil {
		id := *u.ID
		c.ID = &id
	}
	if u.Groups != nil {
		c.Groups = append([]GroupRef(nil), u.Groups...)
	}
	if u.Extra != nil {
		c.Extra = make(map[string]any, len(u.Extra))
		for k, v := range u.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

func (u *User) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	raw := map[string]any{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	*u = *NormalizeUser(raw)
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+8)
	for k, v := range u.Extra {
		out[k] = v
	}

	if u.ID != nil {
		out["id"] = *u.ID
	}
	setIfNotEmpty(out, "email", u.Email)
	setIfNotEmpty(out, "username", u.Username)
	setIfNotEmpty(out, "name", u.Name)
	setIfNotEmpty(out, "first_name", u.FirstName)
	setIfNotEmpty(out, "last_name", u.LastName)
	setIfNotEmpty(out, "phone", u.Phone)

	groups := u.GroupNames()
	if groups == nil {
		groups = []string{}
	}
	out["groups"] = groups

	return json.Marshal(out)
}

// NormalizeUser maps a raw user payload into its canonical form.
// A nil map yields nil.
func NormalizeUser(raw map[string]any) *User {
	if raw == nil {
		return nil
	}

	u := &User{
		Email:     stringField(raw, "email"),
		Username:  stringField(raw, "username"),
		Name:      stringField(raw, "name"),
		FirstName: stringField(raw, "first_name"),
		LastName:  stringField(raw, "last_name"),
		Phone:     stringField(raw, "phone"),
		Groups:    normalizeGroups(raw),
	}

	if u.Phone == "" {
		u.Phone = stringField(raw, "phone_number")
	}

	if id, ok := intField(raw["id"]); ok {
		u.ID = &id
	}

	for k, v := range raw {
		if knownUserFields[k] {
			continue
		}
		if u.Extra == nil {
			u.Extra = map[string]any{}
		}
		u.Extra[k] = v
	}

	// non numeric identifiers are kept as is
	if u.ID == nil && raw["id"] != nil {
		if u.Extra == nil {
			u.Extra = map[string]any{}
		}
		u.Extra["id"] = raw["id"]
	}

	return u
}

func normalizeGroups(raw map[string]any) []GroupRef {
	value := firstPopulated(raw, groupFields...)

	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []map[string]any:
		for _, m := range v {
			items = append(items, m)
		}
	default:
		return []GroupRef{}
	}

	groups := make([]GroupRef, 0, len(items))
	for _, item := range items {
		switch g := item.(type) {
		case string:
			if g != "" {
				groups = append(groups, GroupRef{Name: g})
			}
		case map[string]any:
			// the first populated label decides, even when it is not text
			if name, ok := firstPopulated(g, groupLabelFields...).(string); ok {
				groups = append(groups, GroupRef{Name: name})
			}
		}
	}
	return groups
}

// firstPopulated returns the first value under keys that is present and
// not a zero scalar. An empty list still counts as populated.
func firstPopulated(raw map[string]any, keys ...string) any {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t == "" {
				continue
			}
		case bool:
			if !t {
				continue
			}
		case json.Number:
			if f, err := t.Float64(); err == nil && f == 0 {
				continue
			}
		case float64:
			if t == 0 {
				continue
			}
		case int:
			if t == 0 {
				continue
			}
		}
		return v
	}
	return nil
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func intField(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func setIfNotEmpty(out map[string]any, key, val string) {
	if val != "" {
		out[key] = val
	}
}
