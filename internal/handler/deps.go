package handler

import (
	"chatroster/internal/app/registrar"
	"chatroster/internal/configs"
)

// AppDeps carries what the HTTP handlers need.
type AppDeps struct {
	Registrar *registrar.Registrar
	Config    *configs.AppConfig
}
