/*
Package config loads kvdeck's configuration with spf13/viper.

Sources, in increasing order of precedence:

 1. Defaults (Default, SetDefaults)
 2. The config file: --config, or $XDG_CONFIG_HOME/kvdeck/config.yaml
    (~/.config/kvdeck/config.yaml) when it exists
 3. Environment variables prefixed with KVDECK_, nested keys joined with
    "_" (KVDECK_TLS_CA_CERT). A .env file in the working directory is
    loaded first with joho/godotenv; it never overrides the real
    environment.
 4. Command-line flags the user set

Example config file:

	server: https://deck.example.com/api
	timeout: 30s
	rate_limit: 10
	rate_burst: 20
	tls:
	  ca_cert: ~/.kvdeck/ca.pem
	log:
	  level: info
	  json: false
	keyspace:
	  delimiter: /
	  list_limit: 100
	  tree_limit: 500
	  resolve_status: true
	metrics_addr: 127.0.0.1:9090

Load validates the merged result and reports every problem at once as
ValidationErrors.
*/
package config
