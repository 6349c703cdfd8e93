// Package bytecode defines the register-based instruction set produced by
// the compiler and executed by the virtual machine.
//
// A compiled function is a Prototype: an immutable bundle of instructions,
// constants, upvalue descriptors and nested prototypes. Prototypes hold no
// runtime state; the VM instantiates them into closures, and one prototype
// may back any number of closures at once.
//
// The instruction encoding is an internal contract between pkg/compiler and
// pkg/vm. It carries a format version so cached prototypes can be
// invalidated, but it is not a stable interchange format and changes freely
// between releases.
package bytecode
