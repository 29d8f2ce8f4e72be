// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package stage

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SlotsPerCycle is the number of bosses in one cycle rotation.
const SlotsPerCycle = 5

// Server identifies a game server region.
type Server string

const (
	ServerJP Server = "jp"
	ServerTW Server = "tw"
	ServerKR Server = "kr"
	ServerCN Server = "cn"
)

// KnownServers lists every region the service understands.
var KnownServers = []Server{ServerJP, ServerTW, ServerKR, ServerCN}

//go:embed default.yaml
var defaultTableYAML []byte

// ParseServer validates a region code.
func ParseServer(s string) (Server, error) {
	for _, known := range KnownServers {
		if string(known) == s {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown game server %q", s)
}

// Tier returns the difficulty tier for a cycle.
func Tier(cycle int, hardMode bool) int {
	switch {
	case cycle <= 3:
		return 0
	case cycle <= 10:
		return 1
	case hardMode && cycle >= 35:
		return 3
	default:
		return 2
	}
}

// Table maps (server, tier, slot) to the full health of a boss.
type Table struct {
	servers map[Server][][SlotsPerCycle]int
}

type tableFile struct {
	Servers map[string][][]int `yaml:"servers"`
}

// Default returns the table compiled into the binary.
func Default() *Table {
	t, err := Parse(defaultTableYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded boss table is invalid: %v", err))
	}
	return t
}

// Load reads a boss table from a YAML file.
// Supports environment variable expansion in the form ${VAR_NAME} or ${VAR_NAME:default}.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boss table %s: %w", path, err)
	}
	return Parse([]byte(expandEnvVars(string(data))))
}

// Parse decodes and validates a boss table document.
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse boss table: %w", err)
	}
	if len(file.Servers) == 0 {
		return nil, fmt.Errorf("boss table has no servers")
	}

	t := &Table{servers: make(map[Server][][SlotsPerCycle]int, len(file.Servers))}
	for name, tiers := range file.Servers {
		server, err := ParseServer(name)
		if err != nil {
			return nil, err
		}
		// tier 3 is optional, tiers 0-2 are required
		if len(tiers) < 3 || len(tiers) > 4 {
			return nil, fmt.Errorf("server %s: expected 3 or 4 tiers, got %d", name, len(tiers))
		}
		rows := make([][SlotsPerCycle]int, len(tiers))
		for i, tier := range tiers {
			if len(tier) != SlotsPerCycle {
				return nil, fmt.Errorf("server %s tier %d: expected %d slots, got %d", name, i, SlotsPerCycle, len(tier))
			}
			for j, health := range tier {
				if health <= 0 {
					return nil, fmt.Errorf("server %s tier %d slot %d: health must be positive", name, i, j+1)
				}
				rows[i][j] = health
			}
		}
		t.servers[server] = rows
	}
	return t, nil
}

// Supports reports whether the table has values for a server.
func (t *Table) Supports(server Server) bool {
	_, ok := t.servers[server]
	return ok
}

// FullHealth returns the starting health of the boss in slot for the given cycle.
// It returns 0 for a server the table does not know; callers validate servers on entry.
func (t *Table) FullHealth(server Server, cycle, slot int, hardMode bool) int {
	tiers, ok := t.servers[server]
	if !ok || slot < 1 || slot > SlotsPerCycle {
		return 0
	}
	tier := Tier(cycle, hardMode)
	if tier >= len(tiers) {
		tier = len(tiers) - 1
	}
	return tiers[tier][slot-1]
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		value := os.Getenv(parts[0])
		if value == "" && len(parts) == 2 {
			return parts[1]
		}
		return value
	})
}
