// Package summaryfb holds the FlatBuffers accessors for export/summary.fbs.
package summaryfb

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

type ResultSummary struct {
	_tab flatbuffers.Table
}

func GetRootAsResultSummary(buf []byte, offset flatbuffers.UOffsetT) *ResultSummary {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &ResultSummary{}
	x.Init(buf, n+offset)
	return x
}

func (rcv *ResultSummary) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *ResultSummary) Table() flatbuffers.Table {
	return rcv._tab
}

func (rcv *ResultSummary) GameType() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *ResultSummary) Rounds() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *ResultSummary) FailedRounds() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(8))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *ResultSummary) Seed() int64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(10))
	if o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *ResultSummary) Error() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(12))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *ResultSummary) FinalError() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(14))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *ResultSummary) Strategies(obj *StrategyStat, j int) bool {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(16))
	if o != 0 {
		x := rcv._tab.Vector(o)
		x += flatbuffers.UOffsetT(j) * 4
		x = rcv._tab.Indirect(x)
		obj.Init(rcv._tab.Bytes, x)
		return true
	}
	return false
}

func (rcv *ResultSummary) StrategiesLength() int {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(16))
	if o != 0 {
		return rcv._tab.VectorLen(o)
	}
	return 0
}

func ResultSummaryStart(builder *flatbuffers.Builder) {
	builder.StartObject(7)
}

func ResultSummaryAddGameType(builder *flatbuffers.Builder, gameType flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(0, gameType, 0)
}

func ResultSummaryAddRounds(builder *flatbuffers.Builder, rounds uint32) {
	builder.PrependUint32Slot(1, rounds, 0)
}

func ResultSummaryAddFailedRounds(builder *flatbuffers.Builder, failedRounds uint32) {
	builder.PrependUint32Slot(2, failedRounds, 0)
}

func ResultSummaryAddSeed(builder *flatbuffers.Builder, seed int64) {
	builder.PrependInt64Slot(3, seed, 0)
}

func ResultSummaryAddError(builder *flatbuffers.Builder, err flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(4, err, 0)
}

func ResultSummaryAddFinalError(builder *flatbuffers.Builder, finalError flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(5, finalError, 0)
}

func ResultSummaryAddStrategies(builder *flatbuffers.Builder, strategies flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(6, strategies, 0)
}

func ResultSummaryStartStrategiesVector(builder *flatbuffers.Builder, numElems int) flatbuffers.UOffsetT {
	return builder.StartVector(4, numElems, 4)
}

func ResultSummaryEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
