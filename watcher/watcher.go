package watcher

import (
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/frostpeak/gatewarden/config"
)

// WatchConfig re-validates the config file on each change event. The running
// process keeps its startup snapshot; the watcher only warns the operator
// that the next restart will fail.
func WatchConfig(log *logrus.Logger) {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		var c config.Config
		if err := viper.Unmarshal(&c); err != nil {
			log.WithFields(logrus.Fields{
				"err": err.Error(),
			}).Error("Invalid configuration. The application will not start properly next time.")
			return
		}
		if err := c.Validate(); err != nil {
			log.WithFields(logrus.Fields{
				"err": err.Error(),
			}).Error("Invalid configuration. The application will not start properly next time.")
		}
		log.WithFields(logrus.Fields{
			"file": e.Name,
		}).Info("Config file changed")
	})
}
