package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, 60, cfg.Lifecycle.DeadlineDays)
	assert.Equal(t, 180, cfg.Lifecycle.ValidityDays)
	assert.Equal(t, 30, cfg.Reports.DefaultHorizonDays)
	assert.Equal(t, []string{"USED"}, cfg.Reports.ExcludedStatuses)
	assert.Equal(t, 2*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, time.UTC, cfg.Lifecycle.Location())
	assert.False(t, cfg.Sweep.Enabled)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("REPORT_EXCLUDED_STATUSES", "used, completed")
	v.Set("ENROLLMENT_DEADLINE_DAYS", -4)
	v.Set("SWEEP_INTERVAL", "not-a-duration")
	v.Set("APP_TIMEZONE", "Nowhere/Unknown")

	cfg := fromViper(v)
	assert.Equal(t, []string{"USED", "COMPLETED"}, cfg.Reports.ExcludedStatuses)
	assert.Equal(t, 60, cfg.Lifecycle.DeadlineDays)
	assert.Equal(t, time.Hour, cfg.Sweep.Interval)
	assert.Equal(t, time.UTC, cfg.Lifecycle.Location())
}
