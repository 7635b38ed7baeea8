/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prodcon

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config is used to tune a producer or consumer session. Both sides of a
// channel must use the same Identity and KeyFile.
type Config struct {
	// Identity is the explicit channel identity.
	Identity string

	// KeyFile optionally names a file whose first line replaces Identity.
	// A missing file is ignored.
	KeyFile string

	// Logging enables the session's logger. The global level still applies,
	// see SetLogLevel.
	Logging bool

	// LogOutput receives log lines, default os.Stdout.
	LogOutput io.Writer

	// Tracer and Meter receive OpenTelemetry spans and measurements. Nil
	// selects no-op implementations.
	Tracer trace.Tracer
	Meter  metric.Meter

	// Metrics receives Prometheus measurements when not nil, see NewMetrics.
	Metrics *Metrics
}

// DefaultConfig is used to return a default configuration. Identity is left
// empty and must be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		Logging: true,
	}
}

// VerifyConfig is used to verify the sanity of configuration
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(config.Identity) == "" && config.KeyFile == "" {
		return errors.New("identity must not be empty unless a key file is set")
	}
	if strings.ContainsRune(config.Identity, 0) {
		return fmt.Errorf("identity %q contains a NUL byte", config.Identity)
	}
	return nil
}

func (c *Config) resolve() (Identity, error) {
	id := ResolveIdentity(c.Identity, c.KeyFile)
	if strings.TrimSpace(id.Name) == "" {
		return id, fmt.Errorf("key file %s did not provide an identity and none was given", c.KeyFile)
	}
	return id, nil
}
