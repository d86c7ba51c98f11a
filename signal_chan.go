package jingle

type Signal struct{}

var SignalInstance Signal
