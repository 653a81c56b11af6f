/*
Package archive packs converter outputs into a single downloadable artifact.

Archives are deterministic: entries are written in name order with a fixed
modification time and mode, so packing the same files twice produces identical bytes.
Entries are flat, named after the base name of each packed file.
*/
package archive
