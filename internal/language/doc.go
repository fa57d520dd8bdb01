// Package language normalizes language identifiers used in configuration and
// artifact naming. Codes, BCP 47 tags, and English names all resolve to an
// ISO 639-1 base via golang.org/x/text/language.
package language
