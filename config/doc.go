// Package config loads the opflow configuration.
//
// Configuration is layered: built-in defaults, then every file added with
// AddLayer in order, then OPFLOW_* environment variables. Files are JSON or
// YAML, chosen by extension. Duration fields accept Go duration strings
// ("250ms", "2s") and a day suffix ("14d").
//
//	loader := config.NewLoader()
//	loader.AddLayer("opflow.yaml")
//	loader.AddLayer("opflow.local.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// Environment overrides:
//
//	OPFLOW_LOG_LEVEL, OPFLOW_LOG_FORMAT
//	OPFLOW_RUNTIME_POLICY, OPFLOW_RUNTIME_QUEUE_CAPACITY
//	OPFLOW_CACHE_MAX_BYTES, OPFLOW_CACHE_MAX_OBJECTS
//	OPFLOW_METRICS_ENABLED, OPFLOW_METRICS_ADDR
//	OPFLOW_NATS_ENABLED, OPFLOW_NATS_URL
//	OPFLOW_NATS_USERNAME, OPFLOW_NATS_PASSWORD, OPFLOW_NATS_TOKEN
//
// Validate reports every problem at once, wrapped as an invalid-class error
// carrying errors.ErrInvalidConfig.
package config
