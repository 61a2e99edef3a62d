// Package xz implements the xz container format: stream header/footer,
// one or more independently-filtered blocks, and a trailing index, built
// on top of the lzma, lzma2, filter, and block packages in this module
// (§2, §4.11).
//
// The legacy single-stream LZMA_Alone (.lzma) container is implemented
// separately in alone.go.
package xz
