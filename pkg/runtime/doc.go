// Package runtime implements the value model and the garbage-collected heap.
//
// Values are small tagged structs passed by value; strings, tables, closures,
// upvalue cells and host functions live on the heap and are reclaimed by a
// stop-the-world mark-and-sweep collector. Heap objects never escape the
// interpreter instance that allocated them: every Value reachable from a VM
// was allocated on that VM's heap, which is what lets collection run without
// coordination.
package runtime
