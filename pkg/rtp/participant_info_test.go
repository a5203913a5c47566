package rtp

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantInfoUpdateFromSdesChunk(t *testing.T) {
	var info ParticipantInfo

	changed := info.updateFromSdesChunk([]rtcp.SourceDescriptionItem{
		{Type: rtcp.SDESCNAME, Text: "alice@host"},
		{Type: rtcp.SDESName, Text: "Alice"},
	})
	assert.True(t, changed)
	assert.Equal(t, "alice@host", info.CNAME)
	assert.Equal(t, "Alice", info.Name)

	changed = info.updateFromSdesChunk([]rtcp.SourceDescriptionItem{
		{Type: rtcp.SDESName, Text: "Alice"},
	})
	assert.False(t, changed, "re-applying the same value must not report a change")
}

func TestParticipantInfoCnameNeverClearedByEmptyChunk(t *testing.T) {
	var info ParticipantInfo
	info.updateFromSdesChunk([]rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: "bob@host"}})

	changed := info.updateFromSdesChunk([]rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: ""}})
	assert.False(t, changed)
	assert.Equal(t, "bob@host", info.CNAME)
}

func TestParticipantInfoNoteUsesNoteKindNotLocation(t *testing.T) {
	var info ParticipantInfo
	info.updateFromSdesChunk([]rtcp.SourceDescriptionItem{{Type: rtcp.SDESNote, Text: "on a call"}})
	assert.Equal(t, "on a call", info.Note)
	assert.Empty(t, info.Location)
}

func TestParticipantInfoPrivItemSplitsPrefixFromValue(t *testing.T) {
	var info ParticipantInfo
	// "\x03" + "com" + "acme-id-42" per RFC 3550 §6.5's PRIV sub-encoding.
	info.updateFromSdesChunk([]rtcp.SourceDescriptionItem{
		{Type: rtcp.SDESPrivate, Text: "\x03com" + "acme-id-42"},
	})

	v, ok := info.Extra("com")
	require.True(t, ok)
	assert.Equal(t, "acme-id-42", v)

	_, ok = info.Extra("unknown-prefix")
	assert.False(t, ok)
}

func TestParticipantInfoPrivItemTwoPrefixesDoNotCollide(t *testing.T) {
	var info ParticipantInfo
	info.updateFromSdesChunk([]rtcp.SourceDescriptionItem{
		{Type: rtcp.SDESPrivate, Text: "\x03comfoo"},
		{Type: rtcp.SDESPrivate, Text: "\x03netfoo"},
	})

	com, ok := info.Extra("com")
	require.True(t, ok)
	assert.Equal(t, "foo", com)

	net, ok := info.Extra("net")
	require.True(t, ok)
	assert.Equal(t, "foo", net)
}

func TestParticipantInfoPrivItemMalformedLengthFallsBackToUnprefixed(t *testing.T) {
	var info ParticipantInfo
	info.updateFromSdesChunk([]rtcp.SourceDescriptionItem{
		{Type: rtcp.SDESPrivate, Text: "\x09short"},
	})

	v, ok := info.Extra("")
	require.True(t, ok)
	assert.Equal(t, "\x09short", v)
}
