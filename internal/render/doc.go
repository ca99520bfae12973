// Package render turns a device snapshot into what the tray shows: a 64x64
// icon for one representative device and a multi-line tooltip listing all
// of them.
//
// The icon comes from the first source that works:
//
//  1. a percentage-indexed PNG from icon.asset_dir, optionally per theme
//  2. the percentage drawn as text with the configured font
//  3. a built-in placeholder
//
// Render never fails. The reason for any fallback is kept on the
// Presentation for logging.
package render
