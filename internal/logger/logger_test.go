// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGet_BeforeInit(t *testing.T) {
	assert.NotNil(t, Get())
}

func TestInit(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		t.Run(env, func(t *testing.T) {
			require.NoError(t, Init(env))
			l := Get()
			require.NotNil(t, l)
			l.Info("logger ready", zap.String("env", env))
			Sync()
		})
	}

	assert.True(t, Get().Core().Enabled(zap.InfoLevel))
}
