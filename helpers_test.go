package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
)

// TestHelper isolates environment variables and captures log entries
type TestHelper struct {
	originalEnv     map[string]*string
	originalHandler log.Handler
	logs            *memory.Handler
}

var configEnvVars = []string{
	envConfigFile,
	envPort,
	envBind,
	envSource,
	envAttachmentName,
	envLogLevel,
	envTrustForwarded,
}

// SetupTestEnv clears the server's environment variables and redirects logging
func SetupTestEnv() *TestHelper {
	helper := &TestHelper{
		originalEnv: make(map[string]*string),
		logs:        memory.New(),
	}

	for _, envVar := range configEnvVars {
		if value, ok := os.LookupEnv(envVar); ok {
			helper.originalEnv[envVar] = &value
		} else {
			helper.originalEnv[envVar] = nil
		}
		os.Unsetenv(envVar)
	}

	if logger, ok := log.Log.(*log.Logger); ok {
		helper.originalHandler = logger.Handler
	}
	log.SetHandler(helper.logs)

	return helper
}

// RestoreEnv restores the original environment and log handler
func (h *TestHelper) RestoreEnv() {
	for key, value := range h.originalEnv {
		if value == nil {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, *value)
		}
	}
	if h.originalHandler != nil {
		log.SetHandler(h.originalHandler)
	}
}

// SetEnv sets an environment variable for testing
func (h *TestHelper) SetEnv(key, value string) {
	os.Setenv(key, value)
}

// Entries returns the captured log entries
func (h *TestHelper) Entries() []*log.Entry {
	return h.logs.Entries
}

// GetLogs renders the captured entries one per line as "message key=value ..."
func (h *TestHelper) GetLogs() string {
	var b strings.Builder
	for _, e := range h.logs.Entries {
		b.WriteString(e.Message)
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ClearLogs drops the captured entries
func (h *TestHelper) ClearLogs() {
	h.logs.Entries = nil
}
