// Package tts synthesizes speech by piping cleaned text into the external
// Piper engine, producing WAV files in a local audio cache.
package tts
