// Package resource holds the values an endpoint exposes to its management
// server.
//
// Resources are addressed by object/instance/resource paths such as
// "/3/0/0" or "/Test/0/D". Each resource declares the operations the
// server may perform on it. Static resources never change after they are
// added; dynamic resources change through SetValue (local updates) or
// Write (server updates). Both fire the change hooks with the origin of
// the update.
package resource
