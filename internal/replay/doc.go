// Package replay is an event source that plays back recorded radio frames.
//
// Frames are JSON objects of the form {"event":"onFromRadio","data":{...}},
// one per line. Byte buffers inside data are written as {"@bytes":"<base64>"}.
// The source offers a configured set of event names and delivers each frame
// to the handlers subscribed to its event, one frame at a time.
package replay
