package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Auto-Trading Console Configuration

[api]
# Backend base URL
base_url = "http://localhost:5000"
# Default request timeout
timeout = "30s"
# Per-ticker signal timeout
signal_timeout = "30s"
# Bulk and index endpoint timeout
bulk_timeout = "120s"
# Consecutive transport failures before failing fast
breaker_threshold = 5
breaker_cooldown = "30s"

[relay]
# Socket.IO endpoint; derived from api.base_url when empty
url = ""
max_reconnect_attempts = 5
reconnect_delay = "3s"

[polling]
status_interval = "15s"
prices_interval = "10s"
positions_interval = "30s"
history_interval = "30s"
signals_interval = "60s"

[signals]
# Retries on 5xx or network errors (4xx is never retried)
max_retries = 2
# Linear backoff: retry_base_delay * attempt
retry_base_delay = "1s"
# Request pacing across a fan-out (0 disables)
rate_per_second = 10.0
burst = 5
# Tickers shown by 'console watch'
tickers = ["RELIANCE.NS", "TCS.NS", "INFY.NS"]

[security]
# Block approve/execute/delete and the switch to live trading
read_only_mode = false
# Record every trading action in the audit log
audit_enabled = true

[ui]
color_enabled = true
date_format = "02-Jan-2006"
time_format = "15:04:05"

[notifications]
enabled = true
# Notification level: all, trades_only, errors_only
level = "all"
# Ring the terminal bell on plan-level and error notifications
bell = false
# Percent distance from a plan level that counts as approaching
approach_pct = 0.5

[notifications.webhook]
enabled = false
url = ""

[logging]
level = "info"
console = false
file = true
`

const credentialsTemplate = `# Auto-Trading Console Credentials
# WARNING: Keep this file secure! Do not commit to version control.

# Bearer token sent to the backend, if it requires one
api_token = ""
`

func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}

	return nil
}
