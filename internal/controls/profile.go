package controls

import "github.com/rendis/cellview/pkg/schema"

// Overlay widget kinds understood by the draw host.
const (
	shapeButton = "button"
	shapeTable  = "table"
	shapeImage  = "image"
	shapeLabel  = "label"
)

// profile holds the static properties of one control kind.
type profile struct {
	shape      string
	label      string
	array      bool
	trigger    schema.ModifyTrigger
	background int
	features   []Feature
	properties []string
}

var (
	buttonProps = []string{"label", "background", "visible", "size"}
	tableProps  = []string{"label", "visible", "size", "columns"}
	imageProps  = []string{"visible", "size"}
	labelProps  = []string{"label", "visible"}
)

// profiles has an entry for every kind that can be built. CtlUnknown and
// CtlSimple have none, so CreateControl returns nil for them.
var profiles = map[schema.CtlKind]profile{
	schema.CtlEmpty: {
		shape: shapeLabel, trigger: schema.ModifyTriggerNone, background: -1,
		properties: labelProps,
	},
	schema.CtlError: {
		shape: shapeButton, label: "Error", trigger: schema.ModifyTriggerNone, background: 0xF8D7DA,
		features: []Feature{FeatureCard}, properties: buttonProps,
	},
	schema.CtlInteger: {
		shape: shapeButton, label: "Integer", trigger: schema.ModifyTriggerCellData, background: -1,
		features: []Feature{FeatureCard}, properties: buttonProps,
	},
	schema.CtlFloat: {
		shape: shapeButton, label: "Float", trigger: schema.ModifyTriggerCellData, background: -1,
		features: []Feature{FeatureCard}, properties: buttonProps,
	},
	schema.CtlString: {
		shape: shapeButton, label: "String", trigger: schema.ModifyTriggerCellData, background: -1,
		features: []Feature{FeatureCard}, properties: buttonProps,
	},
	schema.CtlTblData: {
		shape: shapeTable, label: "Table", array: true, trigger: schema.ModifyTriggerCellData, background: -1,
		features: []Feature{FeatureCard, FeatureDataState, FeatureArray}, properties: tableProps,
	},
	schema.CtlDataFrame: {
		shape: shapeTable, label: "DataFrame", array: true, trigger: schema.ModifyTriggerCellData, background: -1,
		features: []Feature{FeatureCard, FeatureDataState, FeatureArray}, properties: tableProps,
	},
	schema.CtlSeries: {
		shape: shapeTable, label: "Series", array: true, trigger: schema.ModifyTriggerCellData, background: -1,
		features: []Feature{FeatureCard, FeatureDataState, FeatureArray}, properties: tableProps,
	},
	schema.CtlImage: {
		shape: shapeImage, label: "Image", trigger: schema.ModifyTriggerCellData, background: -1,
		features: []Feature{FeatureCard, FeatureResize}, properties: imageProps,
	},
	schema.CtlFigure: {
		shape: shapeImage, label: "Figure", trigger: schema.ModifyTriggerCellData, background: -1,
		features: []Feature{FeatureCard, FeatureResize}, properties: imageProps,
	},
	schema.CtlNone: {
		shape: shapeLabel, label: "None", trigger: schema.ModifyTriggerNone, background: -1,
		properties: labelProps,
	},
}

func (p profile) apply(c *Ctl) {
	c.ArrayAbility = p.array
	c.ModifyTrigger = p.trigger
	c.BackgroundColor = p.background
	c.Features = append([]Feature(nil), p.features...)
	c.Properties = append([]string(nil), p.properties...)
}
