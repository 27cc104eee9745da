package opcode

// baseTable holds every opcode's metadata, with MinVersion/MaxVersion on
// opcodes that exist only in some versions; slots whose meaning or
// store/branch rules change by version are layered in versionOverlay.
var baseTable = map[key]Info{
	// 0OP
	{OP0, 0}:  {Known: true, Mnemonic: "rtrue"},
	{OP0, 1}:  {Known: true, Mnemonic: "rfalse"},
	{OP0, 2}:  {Known: true, Mnemonic: "print", HasText: true},
	{OP0, 3}:  {Known: true, Mnemonic: "print_ret", HasText: true},
	{OP0, 4}:  {Known: true, Mnemonic: "nop"},
	{OP0, 5}:  {Known: true, Mnemonic: "save", Branches: true, MaxVersion: 3},
	{OP0, 6}:  {Known: true, Mnemonic: "restore", Branches: true, MaxVersion: 3},
	{OP0, 7}:  {Known: true, Mnemonic: "restart"},
	{OP0, 8}:  {Known: true, Mnemonic: "ret_popped"},
	{OP0, 9}:  {Known: true, Mnemonic: "pop"},
	{OP0, 10}: {Known: true, Mnemonic: "quit"},
	{OP0, 11}: {Known: true, Mnemonic: "new_line"},
	{OP0, 12}: {Known: true, Mnemonic: "show_status", MinVersion: 3, MaxVersion: 3},
	{OP0, 13}: {Known: true, Mnemonic: "verify", Branches: true},
	{OP0, 15}: {Known: true, Mnemonic: "piracy", Branches: true, MinVersion: 5},

	// 1OP
	{OP1, 0}:  {Known: true, Mnemonic: "jz", Branches: true},
	{OP1, 1}:  {Known: true, Mnemonic: "get_sibling", Stores: true, Branches: true},
	{OP1, 2}:  {Known: true, Mnemonic: "get_child", Stores: true, Branches: true},
	{OP1, 3}:  {Known: true, Mnemonic: "get_parent", Stores: true},
	{OP1, 4}:  {Known: true, Mnemonic: "get_prop_len", Stores: true},
	{OP1, 5}:  {Known: true, Mnemonic: "inc"},
	{OP1, 6}:  {Known: true, Mnemonic: "dec"},
	{OP1, 7}:  {Known: true, Mnemonic: "print_addr"},
	{OP1, 8}:  {Known: true, Mnemonic: "call_1s", Stores: true, MinVersion: 4},
	{OP1, 9}:  {Known: true, Mnemonic: "remove_obj"},
	{OP1, 10}: {Known: true, Mnemonic: "print_obj"},
	{OP1, 11}: {Known: true, Mnemonic: "ret"},
	{OP1, 12}: {Known: true, Mnemonic: "jump"},
	{OP1, 13}: {Known: true, Mnemonic: "print_paddr"},
	{OP1, 14}: {Known: true, Mnemonic: "load", Stores: true},
	{OP1, 15}: {Known: true, Mnemonic: "not", Stores: true, MaxVersion: 4}, // not on v1-4, call_1n v5+ (see overlay)

	// 2OP
	{OP2, 1}:  {Known: true, Mnemonic: "je", Branches: true},
	{OP2, 2}:  {Known: true, Mnemonic: "jl", Branches: true},
	{OP2, 3}:  {Known: true, Mnemonic: "jg", Branches: true},
	{OP2, 4}:  {Known: true, Mnemonic: "dec_chk", Branches: true},
	{OP2, 5}:  {Known: true, Mnemonic: "inc_chk", Branches: true},
	{OP2, 6}:  {Known: true, Mnemonic: "jin", Branches: true},
	{OP2, 7}:  {Known: true, Mnemonic: "test", Branches: true},
	{OP2, 8}:  {Known: true, Mnemonic: "or", Stores: true},
	{OP2, 9}:  {Known: true, Mnemonic: "and", Stores: true},
	{OP2, 10}: {Known: true, Mnemonic: "test_attr", Branches: true},
	{OP2, 11}: {Known: true, Mnemonic: "set_attr"},
	{OP2, 12}: {Known: true, Mnemonic: "clear_attr"},
	{OP2, 13}: {Known: true, Mnemonic: "store"},
	{OP2, 14}: {Known: true, Mnemonic: "insert_obj"},
	{OP2, 15}: {Known: true, Mnemonic: "loadw", Stores: true},
	{OP2, 16}: {Known: true, Mnemonic: "loadb", Stores: true},
	{OP2, 17}: {Known: true, Mnemonic: "get_prop", Stores: true},
	{OP2, 18}: {Known: true, Mnemonic: "get_prop_addr", Stores: true},
	{OP2, 19}: {Known: true, Mnemonic: "get_next_prop", Stores: true},
	{OP2, 20}: {Known: true, Mnemonic: "add", Stores: true},
	{OP2, 21}: {Known: true, Mnemonic: "sub", Stores: true},
	{OP2, 22}: {Known: true, Mnemonic: "mul", Stores: true},
	{OP2, 23}: {Known: true, Mnemonic: "div", Stores: true},
	{OP2, 24}: {Known: true, Mnemonic: "mod", Stores: true},
	{OP2, 25}: {Known: true, Mnemonic: "call_2s", Stores: true, MinVersion: 4},
	{OP2, 26}: {Known: true, Mnemonic: "call_2n", MinVersion: 5},
	{OP2, 27}: {Known: true, Mnemonic: "set_colour", MinVersion: 5},
	{OP2, 28}: {Known: true, Mnemonic: "throw", MinVersion: 5},

	// VAR
	{VAR, 0}:  {Known: true, Mnemonic: "call", Stores: true},
	{VAR, 1}:  {Known: true, Mnemonic: "storew"},
	{VAR, 2}:  {Known: true, Mnemonic: "storeb"},
	{VAR, 3}:  {Known: true, Mnemonic: "put_prop"},
	{VAR, 4}:  {Known: true, Mnemonic: "sread", MaxVersion: 4},
	{VAR, 5}:  {Known: true, Mnemonic: "print_char"},
	{VAR, 6}:  {Known: true, Mnemonic: "print_num"},
	{VAR, 7}:  {Known: true, Mnemonic: "random", Stores: true},
	{VAR, 8}:  {Known: true, Mnemonic: "push"},
	{VAR, 9}:  {Known: true, Mnemonic: "pull", MinVersion: 1},
	{VAR, 10}: {Known: true, Mnemonic: "split_window", MinVersion: 3},
	{VAR, 11}: {Known: true, Mnemonic: "set_window", MinVersion: 3},
	{VAR, 12}: {Known: true, Mnemonic: "call_vs2", Stores: true, MinVersion: 4},
	{VAR, 13}: {Known: true, Mnemonic: "erase_window", MinVersion: 4},
	{VAR, 14}: {Known: true, Mnemonic: "erase_line", MinVersion: 4},
	{VAR, 15}: {Known: true, Mnemonic: "set_cursor", MinVersion: 4},
	{VAR, 16}: {Known: true, Mnemonic: "get_cursor", MinVersion: 4},
	{VAR, 17}: {Known: true, Mnemonic: "set_text_style", MinVersion: 4},
	{VAR, 18}: {Known: true, Mnemonic: "buffer_mode", MinVersion: 4},
	{VAR, 19}: {Known: true, Mnemonic: "output_stream", MinVersion: 3},
	{VAR, 20}: {Known: true, Mnemonic: "input_stream", MinVersion: 3},
	{VAR, 21}: {Known: true, Mnemonic: "sound_effect", MinVersion: 3},
	{VAR, 22}: {Known: true, Mnemonic: "read_char", Stores: true, MinVersion: 4},
	{VAR, 23}: {Known: true, Mnemonic: "scan_table", Stores: true, Branches: true, MinVersion: 4},
	{VAR, 24}: {Known: true, Mnemonic: "not", Stores: true, MinVersion: 5},
	{VAR, 25}: {Known: true, Mnemonic: "call_vn", MinVersion: 5},
	{VAR, 26}: {Known: true, Mnemonic: "call_vn2", MinVersion: 5},
	{VAR, 27}: {Known: true, Mnemonic: "tokenise", MinVersion: 5},
	{VAR, 28}: {Known: true, Mnemonic: "encode_text", MinVersion: 5},
	{VAR, 29}: {Known: true, Mnemonic: "copy_table", MinVersion: 5},
	{VAR, 30}: {Known: true, Mnemonic: "print_table", MinVersion: 5},
	{VAR, 31}: {Known: true, Mnemonic: "check_arg_count", Branches: true, MinVersion: 5},

	// EXT (v5+)
	{EXT, 0x00}: {Known: true, Mnemonic: "save", Stores: true, MinVersion: 5},
	{EXT, 0x01}: {Known: true, Mnemonic: "restore", Stores: true, MinVersion: 5},
	{EXT, 0x02}: {Known: true, Mnemonic: "log_shift", Stores: true, MinVersion: 5},
	{EXT, 0x03}: {Known: true, Mnemonic: "art_shift", Stores: true, MinVersion: 5},
	{EXT, 0x04}: {Known: true, Mnemonic: "set_font", Stores: true, MinVersion: 5},
	{EXT, 0x09}: {Known: true, Mnemonic: "save_undo", Stores: true, MinVersion: 5},
	{EXT, 0x0a}: {Known: true, Mnemonic: "restore_undo", Stores: true, MinVersion: 5},
	{EXT, 0x0b}: {Known: true, Mnemonic: "print_unicode", MinVersion: 5},
	{EXT, 0x0c}: {Known: true, Mnemonic: "check_unicode", Stores: true, MinVersion: 5},
	{EXT, 0x0d}: {Known: true, Mnemonic: "set_true_colour", MinVersion: 5},
}

// versionOverlay only needs an entry where an opcode's story-facing meaning
// changes by version (the 1OP/15 slot is "not" on v1-4 and "call_1n" from
// v5). lookup falls back to baseTable when a version has no override.
var versionOverlay = map[uint8]map[key]Info{
	4: overlayFrom(baseTable, map[key]Info{
		// V4 keeps the 0OP save/restore opcodes but switches them from the
		// V1-3 branch-on-success form to a store-on-result form.
		{OP0, 5}: {Known: true, Mnemonic: "save", Stores: true, MinVersion: 4, MaxVersion: 4},
		{OP0, 6}: {Known: true, Mnemonic: "restore", Stores: true, MinVersion: 4, MaxVersion: 4},
	}),
	5: overlayFrom(baseTable, map[key]Info{
		{OP1, 15}: {Known: true, Mnemonic: "call_1n", MinVersion: 5},
		{VAR, 4}:  {Known: true, Mnemonic: "sread", Stores: true, MinVersion: 5},
		// 0OP/9 is "pop" through v4; V5+ repurposes the slot for "catch",
		// which stores the current call-stack depth for a later throw.
		{OP0, 9}: {Known: true, Mnemonic: "catch", Stores: true, MinVersion: 5},
	}),
	6: overlayFrom(baseTable, map[key]Info{
		{OP1, 15}: {Known: true, Mnemonic: "call_1n", MinVersion: 5},
		{VAR, 4}:  {Known: true, Mnemonic: "sread", Stores: true, MinVersion: 5},
		{OP0, 9}:  {Known: true, Mnemonic: "catch", Stores: true, MinVersion: 5},
	}),
	7: overlayFrom(baseTable, map[key]Info{
		{OP1, 15}: {Known: true, Mnemonic: "call_1n", MinVersion: 5},
		{VAR, 4}:  {Known: true, Mnemonic: "sread", Stores: true, MinVersion: 5},
		{OP0, 9}:  {Known: true, Mnemonic: "catch", Stores: true, MinVersion: 5},
	}),
	8: overlayFrom(baseTable, map[key]Info{
		{OP1, 15}: {Known: true, Mnemonic: "call_1n", MinVersion: 5},
		{VAR, 4}:  {Known: true, Mnemonic: "sread", Stores: true, MinVersion: 5},
		{OP0, 9}:  {Known: true, Mnemonic: "catch", Stores: true, MinVersion: 5},
	}),
}

func overlayFrom(base map[key]Info, overrides map[key]Info) map[key]Info {
	merged := make(map[key]Info, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
