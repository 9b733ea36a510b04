package summaryfb

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

type StrategyStat struct {
	_tab flatbuffers.Table
}

func (rcv *StrategyStat) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *StrategyStat) Table() flatbuffers.Table {
	return rcv._tab
}

func (rcv *StrategyStat) Name() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *StrategyStat) Agents() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *StrategyStat) Score() float64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(8))
	if o != 0 {
		return rcv._tab.GetFloat64(o + rcv._tab.Pos)
	}
	return 0.0
}

func (rcv *StrategyStat) SustainabilityImpact() float64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(10))
	if o != 0 {
		return rcv._tab.GetFloat64(o + rcv._tab.Pos)
	}
	return 0.0
}

func (rcv *StrategyStat) SocialWelfare() float64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(12))
	if o != 0 {
		return rcv._tab.GetFloat64(o + rcv._tab.Pos)
	}
	return 0.0
}

func (rcv *StrategyStat) TotalResources() float64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(14))
	if o != 0 {
		return rcv._tab.GetFloat64(o + rcv._tab.Pos)
	}
	return 0.0
}

func StrategyStatStart(builder *flatbuffers.Builder) {
	builder.StartObject(6)
}

func StrategyStatAddName(builder *flatbuffers.Builder, name flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(0, name, 0)
}

func StrategyStatAddAgents(builder *flatbuffers.Builder, agents uint32) {
	builder.PrependUint32Slot(1, agents, 0)
}

func StrategyStatAddScore(builder *flatbuffers.Builder, score float64) {
	builder.PrependFloat64Slot(2, score, 0.0)
}

func StrategyStatAddSustainabilityImpact(builder *flatbuffers.Builder, v float64) {
	builder.PrependFloat64Slot(3, v, 0.0)
}

func StrategyStatAddSocialWelfare(builder *flatbuffers.Builder, v float64) {
	builder.PrependFloat64Slot(4, v, 0.0)
}

func StrategyStatAddTotalResources(builder *flatbuffers.Builder, v float64) {
	builder.PrependFloat64Slot(5, v, 0.0)
}

func StrategyStatEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
