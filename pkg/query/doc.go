// Package query implements QUERY/COUNT argument parsing and evaluation:
// the condition grammar, the index-backed/full-scan evaluation split,
// JOIN/GROUPBY/ORDERBY/LIMIT and INCLUDE/EXCLUDE projection described in
// spec.md §4.7. Grounded on original_source/mgindb/command_utils.py's
// QueryUtil and original_source/mgindb/indices_manager.py's
// eval_conditions_using_indices.
package query
