package config

import "strings"

// STUDIO_GATEWAY_KEYMODE -> gateway.keymode
var envKeyReplacer = strings.NewReplacer(".", "_")
