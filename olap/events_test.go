package olap

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type stringer string

func (s stringer) String() string { return string(s) }

type recordingObserver struct {
	NoopObserver
	phases []QueryPhase
}

func (o *recordingObserver) QueryPhaseCompleted(phase QueryPhase, source string) {
	o.phases = append(o.phases, phase)
}

func TestLogObserver(t *testing.T) {
	require := require.New(t)

	logger, hook := test.NewNullLogger()
	logger.Level = logrus.DebugLevel
	o := &LogObserver{Logger: logger}

	o.QueryPhaseCompleted(PhasePlan, "memory")
	e := hook.LastEntry()
	require.NotNil(e)
	require.Equal(logrus.InfoLevel, e.Level)
	require.Equal(logrus.Fields{"phase": PhasePlan, "source": "memory"}, e.Data)

	o.StepEvaluating(stringer("step"), "memory")
	e = hook.LastEntry()
	require.Equal(logrus.DebugLevel, e.Level)
	require.Equal(logrus.Fields{"step": "step", "source": "memory"}, e.Data)

	o.MeasureCompleted("k1", 3, "memory")
	e = hook.LastEntry()
	require.Equal(logrus.Fields{"measure": "k1", "cells": 3, "source": "memory"}, e.Data)
}

func TestMultiObserver(t *testing.T) {
	require := require.New(t)

	a, b := new(recordingObserver), new(recordingObserver)
	o := NewMultiObserver(a, b, NoopObserver{})
	o.QueryPhaseCompleted(PhasePlan, "memory")
	o.QueryPhaseCompleted(PhaseView, "memory")
	o.StepEvaluating(stringer("step"), "memory")
	o.MeasureCompleted("k1", 1, "memory")

	require.Equal([]QueryPhase{PhasePlan, PhaseView}, a.phases)
	require.Equal([]QueryPhase{PhasePlan, PhaseView}, b.phases)
}
