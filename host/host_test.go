// SPDX-License-Identifier: GPL-3.0-or-later

package host

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinkTypeString(t *testing.T) {
	assert.Equal(t, "wired", LinkWired.String())
	assert.Equal(t, "wireless", LinkWireless.String())
	assert.Equal(t, "unsupported", LinkUnsupported.String())
	assert.Equal(t, "unsupported", LinkType(42).String())
}

func TestLinkInfoAirtime(t *testing.T) {
	t.Run("with bandwidth", func(t *testing.T) {
		info := LinkInfo{Bandwidth: 10_000_000, PropagationDelay: 5 * time.Microsecond}
		assert.Equal(t, 51200*time.Nanosecond+5*time.Microsecond, info.Airtime(64))
		assert.Equal(t, 5*time.Microsecond, info.Airtime(0))
	})

	t.Run("without bandwidth", func(t *testing.T) {
		info := LinkInfo{PropagationDelay: time.Microsecond}
		assert.Equal(t, time.Microsecond, info.Airtime(1500))
	})
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "(1.5, -2.0)", Position{X: 1.5, Y: -2}.String())
}
