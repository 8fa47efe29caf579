/*
Package objpath addresses the objects of a pipeline definition by a dotted
path, for use on the command line and in reports.

The recognized forms are

	modifier.<name>
	group.<name>
	pipeline.<name>
	pipeline.<name>.source
	pipeline.<name>.apply[<index>]

where <index> counts the modifier applications of a pipeline from its source
upwards, starting at 0.
*/
package objpath
