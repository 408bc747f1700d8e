/*
Package config loads the agent configuration.

Settings come from EDGEAGENT_* environment variables processed with
envconfig. An optional dotenv file (DefaultEnvFile) is loaded first with
godotenv, so a device can carry its overrides in /etc/edgeagent.env without
touching the cron table. Variables already present in the environment take
precedence over the file.

The desired artifacts and schedule table come from a YAML manifest. When
EDGEAGENT_MANIFEST is empty the manifest compiled into the binary is used.

The control-plane base URL is not a setting: it lives in the server location
file maintained by the locate command, and ReadBaseURL returns
ErrNoBaseLocation until that file exists.
*/
package config
