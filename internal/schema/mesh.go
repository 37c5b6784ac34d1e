// ABOUTME: Descriptor definitions for the radio's application payload messages
// ABOUTME: Built as protobuf descriptors so payloads decode without generated code

package schema

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Package is the protobuf package of the bundled definitions.
const Package = "meshtastic"

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	tBool     = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tInt32    = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tUint32   = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tFixed32  = descriptorpb.FieldDescriptorProto_TYPE_FIXED32
	tSfixed32 = descriptorpb.FieldDescriptorProto_TYPE_SFIXED32
	tFloat    = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	tString   = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes    = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tEnum     = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	tMessage  = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

// Field describes one optional field of a message definition.
func Field(name string, number int32, typ fieldType) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

// Ref describes an optional enum or message field referring to typeName
// (fully qualified, leading dot).
func Ref(name string, number int32, typ fieldType, typeName string) *descriptorpb.FieldDescriptorProto {
	f := Field(name, number, typ)
	f.TypeName = proto.String(typeName)
	return f
}

// Message describes a message definition.
func Message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

type enumValue struct {
	name   string
	number int32
}

func enum(name string, values ...enumValue) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for _, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v.name),
			Number: proto.Int32(v.number),
		})
	}
	return e
}

// File wraps message definitions into a proto2 file descriptor.
func File(path, pkg string, messages ...*descriptorpb.DescriptorProto) *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:        proto.String(path),
		Package:     proto.String(pkg),
		Syntax:      proto.String("proto2"),
		MessageType: messages,
	}
}

func portNumEnum() *descriptorpb.EnumDescriptorProto {
	return enum("PortNum",
		enumValue{"UNKNOWN_APP", 0},
		enumValue{"TEXT_MESSAGE_APP", 1},
		enumValue{"REMOTE_HARDWARE_APP", 2},
		enumValue{"POSITION_APP", 3},
		enumValue{"NODEINFO_APP", 4},
		enumValue{"ROUTING_APP", 5},
		enumValue{"ADMIN_APP", 6},
		enumValue{"TEXT_MESSAGE_COMPRESSED_APP", 7},
		enumValue{"WAYPOINT_APP", 8},
		enumValue{"AUDIO_APP", 9},
		enumValue{"DETECTION_SENSOR_APP", 10},
		enumValue{"REPLY_APP", 32},
		enumValue{"IP_TUNNEL_APP", 33},
		enumValue{"PAXCOUNTER_APP", 34},
		enumValue{"SERIAL_APP", 64},
		enumValue{"STORE_FORWARD_APP", 65},
		enumValue{"RANGE_TEST_APP", 66},
		enumValue{"TELEMETRY_APP", 67},
		enumValue{"ZPS_APP", 68},
		enumValue{"SIMULATOR_APP", 69},
		enumValue{"TRACEROUTE_APP", 70},
		enumValue{"NEIGHBORINFO_APP", 71},
		enumValue{"ATAK_PLUGIN", 72},
		enumValue{"MAP_REPORT_APP", 73},
		enumValue{"POWERSTRESS_APP", 74},
		enumValue{"PRIVATE_APP", 256},
		enumValue{"ATAK_FORWARDER", 257},
		enumValue{"MAX", 511},
	)
}

func hardwareModelEnum() *descriptorpb.EnumDescriptorProto {
	return enum("HardwareModel",
		enumValue{"UNSET", 0},
		enumValue{"TLORA_V2", 1},
		enumValue{"TLORA_V1", 2},
		enumValue{"TLORA_V2_1_1P6", 3},
		enumValue{"TBEAM", 4},
		enumValue{"HELTEC_V2_0", 5},
		enumValue{"TBEAM_V0P7", 6},
		enumValue{"T_ECHO", 7},
		enumValue{"TLORA_V1_1P3", 8},
		enumValue{"RAK4631", 9},
		enumValue{"HELTEC_V2_1", 10},
		enumValue{"HELTEC_V1", 11},
		enumValue{"LILYGO_TBEAM_S3_CORE", 12},
		enumValue{"RAK11200", 13},
		enumValue{"NANO_G1", 14},
		enumValue{"TLORA_V2_1_1P8", 15},
		enumValue{"TLORA_T3_S3", 16},
		enumValue{"NANO_G1_EXPLORER", 17},
		enumValue{"NANO_G2_ULTRA", 18},
		enumValue{"LORA_TYPE", 19},
		enumValue{"WIPHONE", 20},
		enumValue{"WIO_WM1110", 21},
		enumValue{"RAK2560", 22},
		enumValue{"HELTEC_HRU_3601", 23},
		enumValue{"STATION_G1", 25},
		enumValue{"RAK11310", 26},
		enumValue{"SENSELORA_RP2040", 27},
		enumValue{"SENSELORA_S3", 28},
		enumValue{"CANARYONE", 29},
		enumValue{"RP2040_LORA", 30},
		enumValue{"STATION_G2", 31},
		enumValue{"LORA_RELAY_V1", 32},
		enumValue{"NRF52840DK", 33},
		enumValue{"PPR", 34},
		enumValue{"GENIEBLOCKS", 35},
		enumValue{"NRF52_UNKNOWN", 36},
		enumValue{"PORTDUINO", 37},
		enumValue{"ANDROID_SIM", 38},
		enumValue{"DIY_V1", 39},
		enumValue{"NRF52840_PCA10059", 40},
		enumValue{"DR_DEV", 41},
		enumValue{"M5STACK", 42},
		enumValue{"HELTEC_V3", 43},
		enumValue{"HELTEC_WSL_V3", 44},
		enumValue{"BETAFPV_2400_TX", 45},
		enumValue{"BETAFPV_900_NANO_TX", 46},
		enumValue{"RPI_PICO", 47},
		enumValue{"HELTEC_WIRELESS_TRACKER", 48},
		enumValue{"HELTEC_WIRELESS_PAPER", 49},
		enumValue{"T_DECK", 50},
		enumValue{"T_WATCH_S3", 51},
		enumValue{"PICOMPUTER_S3", 52},
		enumValue{"HELTEC_HT62", 53},
		enumValue{"EBYTE_ESP32_S3", 54},
		enumValue{"ESP32_S3_PICO", 55},
		enumValue{"CHATTER_2", 56},
		enumValue{"HELTEC_WIRELESS_PAPER_V1_0", 57},
		enumValue{"HELTEC_WIRELESS_TRACKER_V1_0", 58},
		enumValue{"UNPHONE", 59},
		enumValue{"TD_LORAC", 60},
		enumValue{"CDEBYTE_EORA_S3", 61},
		enumValue{"TWC_MESH_V4", 62},
		enumValue{"NRF52_PROMICRO_DIY", 63},
		enumValue{"RADIOMASTER_900_BANDIT_NANO", 64},
		enumValue{"HELTEC_CAPSULE_SENSOR_V3", 65},
		enumValue{"HELTEC_VISION_MASTER_T190", 66},
		enumValue{"HELTEC_VISION_MASTER_E213", 67},
		enumValue{"HELTEC_VISION_MASTER_E290", 68},
		enumValue{"HELTEC_MESH_NODE_T114", 69},
		enumValue{"SENSECAP_INDICATOR", 70},
		enumValue{"TRACKER_T1000_E", 71},
		enumValue{"RAK3172", 72},
		enumValue{"WIO_E5", 73},
		enumValue{"RADIOMASTER_900_BANDIT", 74},
		enumValue{"ME25LS01_4Y10TD", 75},
		enumValue{"PRIVATE_HW", 255},
	)
}

const (
	refPortNum       = "." + Package + ".PortNum"
	refHardwareModel = "." + Package + ".HardwareModel"
	refUser          = "." + Package + ".User"
	refPosition      = "." + Package + ".Position"
	refDeviceMetrics = "." + Package + ".DeviceMetrics"
)

// MeshFile returns the bundled payload definitions.
func MeshFile() *descriptorpb.FileDescriptorProto {
	f := File("meshwatch/mesh.proto", Package,
		Message("Data",
			Ref("portnum", 1, tEnum, refPortNum),
			Field("payload", 2, tBytes),
			Field("want_response", 3, tBool),
			Field("dest", 4, tFixed32),
			Field("source", 5, tFixed32),
			Field("request_id", 6, tFixed32),
			Field("reply_id", 7, tFixed32),
			Field("emoji", 8, tFixed32),
		),
		Message("User",
			Field("id", 1, tString),
			Field("long_name", 2, tString),
			Field("short_name", 3, tString),
			Field("macaddr", 4, tBytes),
			Ref("hw_model", 5, tEnum, refHardwareModel),
			Field("is_licensed", 6, tBool),
			Field("public_key", 8, tBytes),
		),
		Message("Position",
			Field("latitude_i", 1, tSfixed32),
			Field("longitude_i", 2, tSfixed32),
			Field("altitude", 3, tInt32),
			Field("time", 4, tFixed32),
			Field("timestamp", 7, tFixed32),
			Field("PDOP", 11, tUint32),
			Field("HDOP", 12, tUint32),
			Field("VDOP", 13, tUint32),
			Field("gps_accuracy", 14, tUint32),
			Field("ground_speed", 15, tUint32),
			Field("ground_track", 16, tUint32),
			Field("fix_quality", 17, tUint32),
			Field("fix_type", 18, tUint32),
			Field("sats_in_view", 19, tUint32),
			Field("precision_bits", 23, tUint32),
		),
		Message("DeviceMetrics",
			Field("battery_level", 1, tUint32),
			Field("voltage", 2, tFloat),
			Field("channel_utilization", 3, tFloat),
			Field("air_util_tx", 4, tFloat),
			Field("uptime_seconds", 5, tUint32),
		),
		Message("Telemetry",
			Field("time", 1, tFixed32),
			Ref("device_metrics", 2, tMessage, refDeviceMetrics),
		),
		Message("NodeInfo",
			Field("num", 1, tUint32),
			Ref("user", 2, tMessage, refUser),
			Ref("position", 3, tMessage, refPosition),
			Field("snr", 4, tFloat),
			Field("last_heard", 5, tFixed32),
			Ref("device_metrics", 6, tMessage, refDeviceMetrics),
			Field("channel", 7, tUint32),
			Field("via_mqtt", 8, tBool),
			Field("hops_away", 9, tUint32),
		),
	)
	f.EnumType = []*descriptorpb.EnumDescriptorProto{portNumEnum(), hardwareModelEnum()}
	return f
}
