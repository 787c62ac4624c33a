// Command groundctl is the runtime's CLI entrypoint: it wires the
// chassis, LIDAR and (optional) RTK supervisors into a robot.Robot and
// serves the line-oriented stdin command loop described in spec.md
// section 6 (`show`, `move <speed> <rudder>`, `user <addr|empty>`).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/itohio/groundctl/internal/chassis"
	"github.com/itohio/groundctl/internal/chassisdrv"
	"github.com/itohio/groundctl/internal/config"
	"github.com/itohio/groundctl/internal/eventbus"
	"github.com/itohio/groundctl/internal/kinematics"
	"github.com/itohio/groundctl/internal/lidar"
	"github.com/itohio/groundctl/internal/lidardrv"
	"github.com/itohio/groundctl/internal/physical"
	"github.com/itohio/groundctl/internal/robot"
	"github.com/itohio/groundctl/internal/rtk"
	"github.com/itohio/groundctl/pkg/logging"
	devio "github.com/itohio/groundctl/x/devices"
)

var (
	configPath = flag.String("config", "", "YAML config path (defaults built in when empty)")
	simulate   = flag.Bool("sim", false, "drive a simulated chassis instead of opening serial devices")
	jsonLogs   = flag.Bool("json-logs", false, "emit newline-delimited JSON logs instead of console output")
)

func main() {
	flag.Parse()

	if *jsonLogs {
		logging.SetJSON()
	}
	log := logging.Named("main")

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Error().Err(err).Str("path", *configPath).Msg("failed to load config")
			os.Exit(1)
		}
		if cfg.JSONLogs {
			logging.SetJSON()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	model := kinematics.NewDifferential(cfg.Chassis.WheelRadius, cfg.Chassis.TrackWidth)

	chassisSup := chassis.New(chassisOpener(cfg, model, *simulate), model)
	lidarGrp := lidar.New(lidarOpener(cfg))

	var rtkSup *rtk.Supervisor
	if cfg.RTK.Enabled {
		rtkSup = rtk.New(rtkOpener(cfg), cfg.RTK.MinPositionState, cfg.RTK.MinDirectionState)
	}

	rc := robot.Config{
		PathFile:           cfg.Tracking.PathFile,
		RecordMinDistanceM: cfg.Tracking.RecordMinDistanceM,
		RecordMinAngleRad:  cfg.Tracking.RecordMinAngleDeg * 3.14159 / 180,
		TrackingSpeed:      cfg.Tracking.Speed,
		TrackSearchRadiusM: cfg.Tracking.SearchRadiusM,
		TrackSearchAngle:   cfg.Tracking.SearchAngleDeg * 3.14159 / 180,
		TrackLightRadiusM:  cfg.Tracking.LightRadiusM,
	}
	r := robot.New(rc, chassisSup, lidarGrp, rtkSup)

	router, err := eventbus.NewRouter(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("event bus disabled: failed to start router")
		router = nil
	}
	pub := eventbus.NewPublisher(router)

	go chassisSup.Run(ctx)
	go lidarGrp.Run(ctx)
	if rtkSup != nil {
		go rtkSup.Run(ctx)
	}
	go r.Run(ctx)
	go eventbus.Run(ctx, r, pub)

	log.Info().Bool("sim", *simulate).Bool("rtk", cfg.RTK.Enabled).Msg("groundctl started")

	runCLI(ctx, r, pub)
}

func chassisOpener(cfg config.Config, model kinematics.Differential, simulate bool) chassis.Opener {
	return func(ctx context.Context) (chassisdrv.Driver, error) {
		if simulate {
			return chassisdrv.NewSimDriver(model), nil
		}
		link, err := devio.NewSerial(cfg.Chassis.Serial.Device)
		if err != nil {
			return nil, fmt.Errorf("open chassis serial: %w", err)
		}
		return chassisdrv.NewSerialDriver(link, cfg.Chassis.Serial.Device), nil
	}
}

func lidarOpener(cfg config.Config) lidar.Opener {
	slots := [lidar.DeviceCount]config.Lidar{cfg.LidarA, cfg.LidarB}
	return func(ctx context.Context, slot int) (lidardrv.Driver, error) {
		dev := slots[slot]
		link, err := devio.NewSerial(dev.Serial.Device)
		if err != nil {
			return nil, fmt.Errorf("open lidar[%d] serial: %w", slot, err)
		}
		return lidardrv.NewSerialDriver(link, dev.Serial.Device), nil
	}
}

func rtkOpener(cfg config.Config) rtk.Opener {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return devio.NewSerial(cfg.RTK.Serial.Device)
	}
}

// runCLI serves the stdin command loop until EOF or ctx is cancelled,
// per spec.md section 6: `show`, `move <speed> <rudder>`, `user
// <addr|empty>`.
func runCLI(ctx context.Context, r *robot.Robot, pub *eventbus.Publisher) {
	log := logging.Named("cli")
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "show":
			if len(fields) == 1 {
				fmt.Println("groundctl running")
			}
		case "move":
			if len(fields) != 3 {
				continue
			}
			p, ok := parsePhysical(fields[1], fields[2])
			if !ok {
				log.Warn().Strs("args", fields[1:]).Msg("invalid move command")
				continue
			}
			r.Drive(p)
		case "record":
			r.Record()
		case "track":
			if err := r.Track(); err != nil {
				log.Error().Err(err).Msg("failed to start tracking")
			}
		case "stop":
			r.Stop()
		case "user":
			switch len(fields) {
			case 1:
				pub.Close()
			case 2:
				if err := pub.AddRoute(ctx, fields[1]); err != nil {
					log.Error().Err(err).Str("route", fields[1]).Msg("failed to add route")
				}
			}
		}
	}
}

func parsePhysical(speedStr, rudderStr string) (physical.Physical, bool) {
	speed, err := strconv.ParseFloat(speedStr, 32)
	if err != nil {
		return physical.Physical{}, false
	}
	rudder, err := strconv.ParseFloat(rudderStr, 32)
	if err != nil {
		if speed == 0 {
			return physical.Released, true
		}
		return physical.Physical{}, false
	}
	return physical.Physical{Speed: float32(speed), Rudder: float32(rudder)}, true
}
