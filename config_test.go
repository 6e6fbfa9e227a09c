// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientConfig_Defaults(t *testing.T) {
	cfg := newClientConfig()

	assert.Equal(t, SecurityPreferenceFirstMatch, cfg.SecurityPreference)
	assert.Equal(t, defaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, defaultWriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, defaultDisconnectTimeout, cfg.DisconnectTimeout)
	assert.IsType(t, PolicyFull{}, cfg.InputPolicy)
	assert.IsType(t, &NoOpLogger{}, cfg.Logger)
	assert.IsType(t, &NoOpMetrics{}, cfg.Metrics)
	assert.Equal(t, defaultVersionQuirks, cfg.VersionQuirks)
	require.Len(t, cfg.Encodings, 5)
	assert.Equal(t, EncodingZRLE, cfg.Encodings[0].Type())
	assert.Equal(t, EncodingRaw, cfg.Encodings[len(cfg.Encodings)-1].Type())
}

func TestNewClientConfig_OptionsOverrideDefaults(t *testing.T) {
	logger := &NoOpLogger{}
	cfg := newClientConfig(
		WithSecurityPreference(SecurityPreferenceStrongest),
		WithExclusive(true),
		WithRepeaterID("ID:1234\n"),
		WithLogger(logger),
		WithInputPolicy(PolicyViewOnly{}),
		WithTimeout(5*time.Second),
		WithDisconnectTimeout(time.Second),
		WithEncodings(&RawEncoding{}),
	)

	assert.Equal(t, SecurityPreferenceStrongest, cfg.SecurityPreference)
	assert.True(t, cfg.Exclusive)
	assert.Equal(t, "ID:1234\n", cfg.RepeaterID)
	assert.Same(t, logger, cfg.Logger)
	assert.IsType(t, PolicyViewOnly{}, cfg.InputPolicy)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, time.Second, cfg.DisconnectTimeout)
	require.Len(t, cfg.Encodings, 1)
}

func TestWithAuthRegistry_TakesPriorityOverAuth(t *testing.T) {
	registry := NewAuthRegistry()
	cfg := newClientConfig(WithAuth(&ClientAuthNone{}), WithAuthRegistry(registry))

	assert.Same(t, registry, cfg.AuthRegistry)
	require.Len(t, cfg.Auth, 1)
}
