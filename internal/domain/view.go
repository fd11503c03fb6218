package domain

// ViewSpec selects which entries the display layer sees.
// ViewSpec values are comparable with ==.
type ViewSpec struct {
	ShowInfo    bool   `json:"show_info"`
	ShowWarning bool   `json:"show_warning"`
	ShowError   bool   `json:"show_error"`
	Collapse    bool   `json:"collapse"`
	SearchText  string `json:"search_text,omitempty"`
}

// DefaultViewSpec shows every severity, uncollapsed, without search
func DefaultViewSpec() ViewSpec {
	return ViewSpec{ShowInfo: true, ShowWarning: true, ShowError: true}
}

// ShowsSeverity reports whether entries of severity s pass type filtering
func (v ViewSpec) ShowsSeverity(s Severity) bool {
	switch s.Bucket() {
	case SeverityInfo:
		return v.ShowInfo
	case SeverityWarning:
		return v.ShowWarning
	case SeverityError:
		return v.ShowError
	}
	return false
}

// LogParams holds the query parameters the CLI and TUI client send when
// reading logs from a running server.
//
// Fields:
//   - View: the view specification to resolve.
//   - Refresh: force a full rescan on the server.
//   - Limit: return at most the last Limit entries. 0 means all.
type LogParams struct {
	View    ViewSpec
	Refresh bool
	Limit   int
}
