package models

// Document collections.
const (
	CollectionUsers               = "users"
	CollectionApps                = "apps"
	CollectionAudits              = "audits"
	CollectionConnectionCLI       = "connection_cli"
	CollectionConnectionExtension = "connection_extension"
)
