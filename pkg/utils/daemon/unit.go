package daemon

import "strings"

// unitTemplate is the systemd service trackd installs itself as.
const unitTemplate = `[Unit]
Description=trackd body proportion calibration daemon
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=/path/to/trackd daemon --config /path/to/config
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

func renderUnit(exePath, configPath string) string {
	r := strings.NewReplacer(
		"/path/to/trackd", exePath,
		"/path/to/config", configPath,
	)
	return r.Replace(unitTemplate)
}
