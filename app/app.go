package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/mbolis/form-forge/ai"
	"github.com/mbolis/form-forge/billing"
	"github.com/mbolis/form-forge/config"
	"github.com/mbolis/form-forge/storage"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config

	Files     storage.Store
	Generator ai.Generator
	Payments  *billing.Client
}
