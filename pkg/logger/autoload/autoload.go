// Package autoload initializes the global logger from the LOG_* environment
// on import:
//
//	import _ "github.com/tanpawarit/Camara-Agent-Gateway/pkg/logger/autoload"
package autoload

import (
	configx "github.com/tanpawarit/Camara-Agent-Gateway/pkg/config"
	logx "github.com/tanpawarit/Camara-Agent-Gateway/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
