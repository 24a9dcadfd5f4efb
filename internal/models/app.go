package models

type ConnectionType string

const (
	ConnectionNone      ConnectionType = "none"
	ConnectionCLI       ConnectionType = "cli"
	ConnectionExtension ConnectionType = "extension"
)

func (c ConnectionType) Valid() bool {
	switch c {
	case ConnectionNone, ConnectionCLI, ConnectionExtension:
		return true
	}
	return false
}

// App is a user-registered codebase tracked for compliance audits.
type App struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId" validate:"required"`
	Name           string         `json:"name" validate:"required"`
	Description    string         `json:"description,omitempty"`
	RepositoryURL  string         `json:"repositoryUrl,omitempty"`
	APIKey         string         `json:"apiKey" validate:"required"`
	ConnectionType ConnectionType `json:"connectionType"`
	IsConnected    bool           `json:"isConnected"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt,omitempty"`
	LastAuditAt    string         `json:"lastAuditAt,omitempty"`
}

type CreateAppRequest struct {
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description"`
	RepositoryURL string `json:"repositoryUrl"`
}

// AppPatch lists the fields a caller may change. Nil pointers are left untouched.
type AppPatch struct {
	Name           *string         `json:"name" validate:"omitnil,min=1"`
	Description    *string         `json:"description"`
	RepositoryURL  *string         `json:"repositoryUrl"`
	ConnectionType *ConnectionType `json:"connectionType"`
	IsConnected    *bool           `json:"isConnected"`
	LastAuditAt    *string         `json:"lastAuditAt"`
}

type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}
