// Package config loads the process-wide YAML configuration: serial
// device paths, chassis kinematic parameters, LIDAR mounting, and the
// Open-Question tunables DESIGN.md documents decisions for.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Serial describes one serial transport endpoint.
type Serial struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// Chassis holds the kinematic parameters the reference chassis driver
// and trajectory predictor both need.
type Chassis struct {
	Serial      Serial  `yaml:"serial"`
	WheelRadius float32 `yaml:"wheel_radius_m"`
	TrackWidth  float32 `yaml:"track_width_m"`
	MaxRPM      float32 `yaml:"max_rpm"`
}

// Lidar holds per-index mounting and serial configuration for one of
// the group's two slots.
type Lidar struct {
	Serial Serial  `yaml:"serial"`
	PoseX  float32 `yaml:"pose_x_m"`
	PoseY  float32 `yaml:"pose_y_m"`
	PoseTh float32 `yaml:"pose_theta_rad"`
}

// RTK holds the optional GNSS receiver's transport and trust-weight
// policy (Open Question, decided in DESIGN.md: adequate iff
// PositionState >= MinPositionState && DirectionState >= MinDirectionState).
type RTK struct {
	Enabled            bool   `yaml:"enabled"`
	Serial             Serial `yaml:"serial"`
	MinPositionState   int    `yaml:"min_position_state"`
	MinDirectionState  int    `yaml:"min_direction_state"`
}

// Tracking holds the path record-and-replay tunables, including the
// "significantly different" Open Question decision (5cm / 5deg
// defaults, overridable here).
type Tracking struct {
	PathFile           string  `yaml:"path_file"`
	RecordMinDistanceM float32 `yaml:"record_min_distance_m"`
	RecordMinAngleDeg  float32 `yaml:"record_min_angle_deg"`
	Speed              float32 `yaml:"speed_mps"`
	SearchRadiusM      float32 `yaml:"search_radius_m"`
	SearchAngleDeg     float32 `yaml:"search_angle_deg"`
	LightRadiusM       float32 `yaml:"light_radius_m"`
}

// Config is the top-level process configuration document.
type Config struct {
	Chassis  Chassis  `yaml:"chassis"`
	LidarA   Lidar    `yaml:"lidar_a"`
	LidarB   Lidar    `yaml:"lidar_b"`
	RTK      RTK      `yaml:"rtk"`
	Tracking Tracking `yaml:"tracking"`
	JSONLogs bool     `yaml:"json_logs"`
}

// Default returns a Config with the spec-documented default tunables
// filled in, suitable as a starting point before overlaying a file.
func Default() Config {
	return Config{
		Chassis: Chassis{WheelRadius: 0.05, TrackWidth: 0.3, MaxRPM: 200},
		RTK:     RTK{MinPositionState: 40, MinDirectionState: 30},
		Tracking: Tracking{
			PathFile:           "path",
			RecordMinDistanceM: 0.05,
			RecordMinAngleDeg:  5,
			Speed:              0.25,
			SearchRadiusM:      4,
			SearchAngleDeg:     180,
			LightRadiusM:       0.6,
		},
	}
}

// Load reads and parses the YAML document at path, overlaying it onto
// Default().
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
