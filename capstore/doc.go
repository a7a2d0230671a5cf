/*
Package capstore is an embedded, file-backed store of caps (catalog records).

A Store is made of 3 plain text files in DataDir:

  - a heap log (default: "caps.txt") with one encoded Cap per line, append-only.
    Position of a cap is its ordinal index among non-blank lines
  - a primary index (default: "cap_index.txt") with "id,position" lines,
    ascending by id. It's rewritten in full after every Save and loaded
    into a B+ tree
  - a brand index (default: "brand_index.txt") with "brand,id1,id2,..." lines,
    one per brand, brand lowercased

Appends are written as "\n" + line so files may start with a blank line.
Readers skip blank lines.

Basic usage:

	s := &capstore.Store{
		DataDir: "./data",
	}
	err := capstore.OpenStore(s)
	if err != nil {
		log.Fatal(err)
	}
	c, err := s.Save(capstore.Cap{ID: 1, Brand: "adidas", ...})
	c, err = s.FindByID(1)
	caps, err := s.FindByBrand("ADIDAS")

Files are read lazily, on first operation that needs them, and only once.
Changes made to the files by other processes after that are not observed.

# Errors

Errors wrap one of ErrInvalidArgument, ErrConflict, ErrNotFound,
ErrCorruption or ErrIO. Use errors.Is to tell them apart.

Save is not atomic across files: if the heap append succeeds but writing
an index fails, the files are left inconsistent.

# Limitations

Encoded fields are separated with ',' and there's no escaping. Brand, color
and collaboration must not contain ',' or a newline.

# Thread Safety

Store is safe for concurrent use. Save is serialized with a write lock held
from the uniqueness check until both indexes are persisted. Reads share
a read lock.
*/
package capstore
