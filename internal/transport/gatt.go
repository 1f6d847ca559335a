package transport

// GATT identifiers of the accelerometer. A bridge subscribes to notifications
// of DataCharacteristicUUID and forwards every value it receives as one frame.
const (
	DeviceName             = "ISRO_AccelSensor"
	ServiceUUID            = "12340000-1234-5678-9abc-def012345678"
	DataCharacteristicUUID = "12340001-1234-5678-9abc-def012345678"
)

// Environment variables naming the sensor for a bridge started by CommandSource.
const (
	EnvDeviceName     = "ACCEL_DEVICE_NAME"
	EnvServiceUUID    = "ACCEL_SERVICE_UUID"
	EnvCharacteristic = "ACCEL_CHARACTERISTIC_UUID"
)

// BridgeEnv returns the environment entries describing the sensor to a bridge.
func BridgeEnv() []string {
	return []string{
		EnvDeviceName + "=" + DeviceName,
		EnvServiceUUID + "=" + ServiceUUID,
		EnvCharacteristic + "=" + DataCharacteristicUUID,
	}
}
