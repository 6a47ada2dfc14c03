// Package logger es el logger zap del nodo.
//
// bootstrap llama a Init una vez con el entorno, el nivel y el formato de la
// config; cada entrada lleva cluster y node_id. Los componentes toman
// Named("cluster"), Named("datastream"), etc. en su constructor. El router de
// operación guarda en el contexto un logger con request_id (WithFields) y los
// handlers lo recuperan con From.
//
//	if err := logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level}); err != nil {
//		return err
//	}
//	defer logger.Sync()
package logger
