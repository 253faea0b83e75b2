package contacts

import (
	"context"
	"regexp"
	"strings"
)

// ContactRow is one registry row from push payloads or a pulled sheet.
type ContactRow struct {
	ContactID            string `json:"contact_id"`
	PrimaryEmail         string `json:"primary_email"`
	DisplayName          string `json:"display_name,omitempty"`
	FirstName            string `json:"first_name,omitempty"`
	LastName             string `json:"last_name,omitempty"`
	Company              string `json:"company,omitempty"`
	OwnerUserID          string `json:"owner_user_id,omitempty"`
	Notes                string `json:"notes,omitempty"`
	UseSensitiveInDrafts bool   `json:"use_sensitive_in_drafts"`
}

// RowSource provides rows for pull-mode sync, typically a spreadsheet.
type RowSource interface {
	FetchRows(ctx context.Context) ([]ContactRow, error)
}

// StaticRowSource serves a fixed row set. Useful for tests and for callers
// that load the sheet themselves.
type StaticRowSource []ContactRow

func (s StaticRowSource) FetchRows(context.Context) ([]ContactRow, error) {
	return []ContactRow(s), nil
}

var headerPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func normalizeHeader(v string) string {
	return strings.Trim(headerPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(v)), "_"), "_")
}

var truthy = map[string]struct{}{"1": {}, "true": {}, "yes": {}, "y": {}, "on": {}}

func coerceBool(v string) bool {
	_, ok := truthy[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

func firstNonEmpty(payload map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(payload[key]); v != "" {
			return v
		}
	}
	return ""
}

// ParseValuesGrid turns a header-row-plus-data grid into contact rows. Rows
// missing an email or a contact id are skipped.
func ParseValuesGrid(values [][]string) []ContactRow {
	if len(values) == 0 {
		return nil
	}
	headers := make([]string, len(values[0]))
	for i, cell := range values[0] {
		headers[i] = normalizeHeader(cell)
	}

	var rows []ContactRow
	for _, cells := range values[1:] {
		blank := true
		for _, cell := range cells {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}

		payload := map[string]string{}
		for i, header := range headers {
			if header == "" {
				continue
			}
			if i < len(cells) {
				payload[header] = strings.TrimSpace(cells[i])
			}
		}

		email := strings.ToLower(firstNonEmpty(payload, "primary_email", "email"))
		contactID := firstNonEmpty(payload, "contact_id", "contactid", "id")
		if email == "" || contactID == "" {
			continue
		}

		firstName := firstNonEmpty(payload, "first_name", "firstname")
		lastName := firstNonEmpty(payload, "last_name", "lastname")
		displayName := firstNonEmpty(payload, "display_name", "full_name", "name")
		if displayName == "" {
			displayName = strings.TrimSpace(firstName + " " + lastName)
		}

		rows = append(rows, ContactRow{
			ContactID:            contactID,
			PrimaryEmail:         email,
			DisplayName:          displayName,
			FirstName:            firstName,
			LastName:             lastName,
			Company:              firstNonEmpty(payload, "company", "organization", "org"),
			OwnerUserID:          firstNonEmpty(payload, "owner_user_id", "owner", "owner_user"),
			Notes:                firstNonEmpty(payload, "notes", "note"),
			UseSensitiveInDrafts: coerceBool(payload["use_sensitive_in_drafts"]),
		})
	}
	return rows
}
