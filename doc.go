// Package vpk reads and writes Valve PacK (VPK) version 2 archives.
//
// A VPK archive is an index file named "<base>_dir.vpk" plus zero or more
// data files named "<base>_000.vpk", "<base>_001.vpk", and so on. The index
// holds a header, a directory tree keyed by extension, path, and filename,
// optional embedded entry data, and two MD5 sections used for integrity
// checks. Each entry may store a short prefix of its bytes inline in the tree
// ("preload" bytes) and the remainder either in the index file or in one of
// the numbered data files.
//
// # Reading
//
// Open an archive by its index path and look entries up by key:
//
//	a, err := vpk.Open("pak01_dir.vpk")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	r, err := a.Lookup("materials/models/crate.vmt")
//	if err != nil {
//	    return err
//	}
//	content, err := io.ReadAll(r)
//
// Keys have the form "path/filename.extension". Valve tools store an empty
// path or extension as a single space, so a root-level "readme" file has the
// key " /readme. ". [Archive] also implements fs.FS with those placeholders
// removed, so the same entry is "readme" through Open, ReadFile, and ReadDir.
//
// [OpenURL] opens an archive served over HTTP, fetching only the byte ranges
// each read needs. [WithBlockCache] keeps fetched blocks on disk between
// opens.
//
// # Writing
//
// [Create] lays out a set of [EntryPrototype] values across the index file
// and as many data files as the split threshold requires. [CreateFromDir]
// builds the prototypes from a directory tree.
//
// # Integrity
//
// [Archive.ValidateArchive] re-hashes every data file range recorded in the
// archive MD5 section. [Archive.ValidateOther] re-hashes the tree and the
// archive MD5 section itself.
//
// # Export
//
// [Archive.CopyDir] extracts entries to a directory, [Archive.WriteTar]
// streams them as a tar (optionally zstd-compressed), and
// [Archive.WriteStargz] builds an eStargz layer with its OCI descriptor.
package vpk
