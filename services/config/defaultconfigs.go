package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// One YAML document per node kind. A config file given on the command line
// is overlaid on top, then environment overrides are applied.
// -----------------------------------------------------------------------------

const cfgHub = `
node: hub
log:
  level: info
  format: console
broker:
  url: tcp://192.168.179.176:1883
  client_id: floraSevenHubNode
  qos: 0
  connect_timeout: 5s
  retry:
    max_attempts: 5
    delay: 5s
topics:
  prefix: floraSeven
metrics:
  listen: ""
hub:
  i2c_device: /dev/i2c-1
  pump_address: 0x08
  settle_delay: 50ms
  status_interval: 60s
  reconnect_interval: 5s
  camera:
    still_path: /run/floraseven/still.jpg
    buffers: 1
    max_frame_bytes: 524288
  upload:
    url: http://192.168.179.176:5000/api/v1/upload_image
    timeout: 10s
`

const cfgSensor = `
node: sensor
log:
  level: info
  format: console
broker:
  url: tcp://192.168.179.176:1883
  client_id: floraSevenPlantNode1
  qos: 0
  connect_timeout: 5s
  retry:
    max_attempts: 5
    delay: 5s
topics:
  prefix: floraSeven
metrics:
  listen: ""
sensor:
  node_id: node1
  interval: 30s
  i2c_device: /dev/i2c-1
  w1_path: /sys/bus/w1/devices/28-000000000000/w1_slave
  adc_dir: /sys/bus/iio/devices/iio:device0
  channels:
    moisture: 6
    uv: 7
    ec: 4
  samples: 8
  publish_ec: false
  ec:
    zero_volts: 0.15
    known_volts: 1.85
    known_ms_cm: 1.413
    temp_coeff: 0.019
`

var embeddedConfigs = map[string][]byte{
	NodeHub:    []byte(cfgHub),
	NodeSensor: []byte(cfgSensor),
}
