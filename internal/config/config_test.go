package config_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/tempusrecords/internal/config"
	"github.com/okian/tempusrecords/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.BaseURL, convey.ShouldEqual, "https://tempus2.xyz/api/v0")
			convey.So(cfg.MinInterval(), convey.ShouldEqual, 500*time.Millisecond)
			convey.So(cfg.MaxAttempts, convey.ShouldEqual, 5)
			convey.So(cfg.RequestTimeout(), convey.ShouldEqual, 15*time.Second)
			convey.So(cfg.DelimiterRune(), convey.ShouldEqual, ';')
			convey.So(cfg.TimeFormat, convey.ShouldEqual, "seconds")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then catalog and output paths follow the class", func() {
			convey.So(cfg.CatalogPath(model.ClassSoldier), convey.ShouldEqual, "all_maps_soldier_info.csv")
			convey.So(cfg.CatalogPath(model.ClassDemoman), convey.ShouldEqual, "all_maps_demoman_info.csv")
			convey.So(cfg.RecordsPath(), convey.ShouldEqual, "player_map_records.csv")
			convey.So(cfg.FailedPath(), convey.ShouldEqual, "failed_maps.csv")
		})

		convey.Convey("When directories are set", func() {
			cfg.CatalogDir = filepath.Join("data", "catalogs")
			cfg.OutputDir = "out"

			convey.Convey("Then paths are joined", func() {
				convey.So(cfg.CatalogPath(model.ClassDemoman), convey.ShouldEqual,
					filepath.Join("data", "catalogs", "all_maps_demoman_info.csv"))
				convey.So(cfg.RecordsPath(), convey.ShouldEqual, filepath.Join("out", "player_map_records.csv"))
			})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a config with bad settings", t, func() {
		cfg := config.New()
		cfg.LogFormat = "xml"
		cfg.TimeFormat = "minutes"
		cfg.Delimiter = ";;"
		cfg.MinIntervalMS = -1
		cfg.MaxAttempts = 0
		cfg.PlayerID = "abc"
		cfg.Class = "pyro"

		convey.Convey("When validated", func() {
			err := cfg.Validate()

			convey.Convey("Then every problem is reported", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(errors.Is(err, model.ErrInvalidPlayerID), convey.ShouldBeTrue)
				convey.So(errors.Is(err, model.ErrInvalidClass), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "log_format")
				convey.So(err.Error(), convey.ShouldContainSubstring, "time_format")
				convey.So(err.Error(), convey.ShouldContainSubstring, "delimiter")
				convey.So(err.Error(), convey.ShouldContainSubstring, "min_interval_ms")
				convey.So(err.Error(), convey.ShouldContainSubstring, "max_attempts")
			})
		})
	})

	convey.Convey("Given a zero interval", t, func() {
		cfg := config.New()
		cfg.MinIntervalMS = 0

		convey.Convey("Then pacing may be disabled", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
